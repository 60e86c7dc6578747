// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package datastore

import (
	"errors"
	"fmt"
)

var (
	// ErrDatabase matches every DatabaseError.
	ErrDatabase = errors.New("datastore: database error")
	// ErrProgrammer matches every ProgrammerError.
	ErrProgrammer = errors.New("datastore: programmer error")
)

// DatabaseError reports a failure of the underlying driver: connectivity,
// authentication or a native fault. Callers may treat it as transient.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("datastore: %s failed", e.Op)
	}
	return fmt.Sprintf("datastore: %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// Is reports true for ErrDatabase.
func (e *DatabaseError) Is(target error) bool { return target == ErrDatabase }

// ProgrammerError reports a contract violation by the calling code, such as a
// nested acquisition. It is never transient.
type ProgrammerError struct {
	Msg string
}

func (e *ProgrammerError) Error() string {
	return "datastore: " + e.Msg
}

// Is reports true for ErrProgrammer.
func (e *ProgrammerError) Is(target error) bool { return target == ErrProgrammer }

func databaseError(op string, err error) error {
	if err == nil {
		return nil
	}
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return err
	}
	return &DatabaseError{Op: op, Err: err}
}

func programmerError(format string, args ...any) error {
	return &ProgrammerError{Msg: fmt.Sprintf(format, args...)}
}
