// Copyright 2022 gorse Project Authors
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
package main

import "strconv"

// parseFloatStrict parses a C floating-constant's mantissa+exponent body
// (suffix already stripped by the lexer) using Go's float grammar, which
// is a superset of C's for this purpose.
func parseFloatStrict(text string) (float64, error) {
	return strconv.ParseFloat(text, 64)
}
