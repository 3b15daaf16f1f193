// Copyright (c) 2024 The Falcon Contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package config holds the process-wide knobs the backend reads: currently
// just the parallel-emission worker counts. Value 1 selects serial emission.
package config

// Config is the process-wide configuration surface.
type Config struct {
	NumParallelForFuncGenASM  int
	NumParallelForBlockGenASM int
}

// Option mutates a Config during construction.
type Option func(*Config)

// WithParallelFuncGenASM sets the number of functions emitted concurrently.
func WithParallelFuncGenASM(n int) Option {
	return func(c *Config) { c.NumParallelForFuncGenASM = n }
}

// WithParallelBlockGenASM sets the number of blocks emitted concurrently
// within a single function.
func WithParallelBlockGenASM(n int) Option {
	return func(c *Config) { c.NumParallelForBlockGenASM = n }
}

// Default returns the serial-emission configuration.
func Default(opts ...Option) *Config {
	c := &Config{NumParallelForFuncGenASM: 1, NumParallelForBlockGenASM: 1}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
