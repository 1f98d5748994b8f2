// Command libflightlog builds the converter as a C shared library:
//
//	go build -buildmode=c-shared -o libflightlog.so ./cmd/libflightlog
//
// Every call takes a context created by flightlog_context_new. Errors are
// fetched afterwards with flightlog_last_error and strings handed out by the
// library are given back with flightlog_release.
package main

func main() {}
