// Copyright (C) 2024 Nativexec Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package shuffle

// runState is the Repartitioner's state machine:
//
//	Created -> Ingesting <-> Spilling -> Finalizing -> Done
type runState int

const (
	stateCreated runState = iota
	stateIngesting
	stateSpilling
	stateFinalizing
	stateDone
)

func (s runState) String() string {
	switch s {
	case stateCreated:
		return "created"
	case stateIngesting:
		return "ingesting"
	case stateSpilling:
		return "spilling"
	case stateFinalizing:
		return "finalizing"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}
