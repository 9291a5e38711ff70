// Package logs reads the per-process JSON log files under the log directory.
//
// Every supervised process writes <log_dir>/<name>.log, where name is
// "supervisor" or a stage. Last returns the trailing lines with bounded memory
// and Follow streams appended lines until its context ends, surviving
// truncation and the file being created late.
package logs
