// Package cli implements exius-cli, the operator tool for a relay server.
//
// Each invocation runs one command:
//
//	exius-cli issue -r eeg -m cohort-a
//	exius-cli upload -r eeg -k 0012345 data=a.csv eeg=trace.csv
//	exius-cli upload -token <upload token> a.csv
//	exius-cli relay -r eeg
//
// Relay passwords and GitHub tokens are read from the terminal without echo.
package cli
