// Copyright 2025 cinerec Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package base

import "github.com/juju/errors"

var (
	// ErrTrainingDiverged is returned when SGD produces non-finite parameters,
	// usually caused by a learning rate too large for the sample.
	ErrTrainingDiverged = errors.New("training diverged: non-finite model parameters")

	// ErrModelVersionMismatch is returned when a persisted model snapshot
	// disagrees with the current configuration or file format.
	ErrModelVersionMismatch = errors.New("model version mismatch")
)
