// Copyright © 2023 FORTH-ICS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package version

import "fmt"

// Set at build time with -ldflags "-X github.com/carv-ics-forth/batchq/pkg/version.BuildVersion=..."
var (
	BuildVersion = "dev"
	BuildTime    = "unknown"
)

func String() string {
	return fmt.Sprintf("Version: %s, Built: %s", BuildVersion, BuildTime)
}
