// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ui

type ColorValue string

const (
	ColorGreen ColorValue = "green"
	ColorWhite ColorValue = "white"
	ColorRed   ColorValue = "red"
	ColorGray  ColorValue = "gray"
)

// lipgloss ANSI color indexes.
var colorCodes = map[ColorValue]string{
	ColorGreen: "2",
	ColorWhite: "7",
	ColorRed:   "1",
	ColorGray:  "241",
}

type StyleOption func(s *style)

type style struct {
	foreground     ColorValue
	renderMarkdown bool
}

func Foreground(color ColorValue) StyleOption {
	return func(s *style) {
		s.foreground = color
	}
}

func RenderMarkdown() StyleOption {
	return func(s *style) {
		s.renderMarkdown = true
	}
}
