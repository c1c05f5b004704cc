/*
Copyright 2024 The Strusgo Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package weighting

import "math"

func powFunc(a, b float64) float64 { return math.Pow(a, b) }
func logFunc(a float64) float64    { return math.Log(a) }
func log10Func(a float64) float64  { return math.Log10(a) }
func sqrtFunc(a float64) float64   { return math.Sqrt(a) }
func expFunc(a float64) float64    { return math.Exp(a) }
func absFunc(a float64) float64    { return math.Abs(a) }
