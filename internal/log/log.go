// Copyright (C) 2020 Markus L. Noga
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
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package log is a singleton log writer, adapted from nightlight's
// internal/log.go. Writes to stdout and optionally tees to a file.
// Does not add prefixes or force newlines, matching the rest of the
// codebase's terse logging style.
package log

import (
	"bufio"
	"fmt"
	"os"
)

var logFile *bufio.Writer
var logFileOS *os.File

// AlsoToFile enables logging to a file in addition to stdout.
func AlsoToFile(fileName string) (err error) {
	if logFile != nil {
		if err = logFile.Flush(); err != nil {
			return err
		}
		if err = logFileOS.Close(); err != nil {
			return err
		}
	}
	logFileOS, err = os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	logFile = bufio.NewWriter(logFileOS)
	return nil
}

func Printf(format string, args ...interface{}) {
	fmt.Printf(format, args...)
	if logFile != nil {
		fmt.Fprintf(logFile, format, args...)
	}
}

func Println(args ...interface{}) {
	fmt.Println(args...)
	if logFile != nil {
		fmt.Fprintln(logFile, args...)
	}
}

func Fatalf(format string, args ...interface{}) {
	fmt.Printf(format, args...)
	if logFile != nil {
		fmt.Fprintf(logFile, format, args...)
		logFile.Flush()
		logFileOS.Close()
	}
	os.Exit(1)
}

// Sync flushes any pending log file output.
func Sync() {
	if logFile != nil {
		logFile.Flush()
		logFileOS.Sync()
	}
}
