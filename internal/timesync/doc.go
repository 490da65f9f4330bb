// Package timesync gates bring-up on a trustworthy wall clock.
//
// A Gate polls a Source a bounded number of times. Two sources exist:
//
//   - kernel: reads adjtimex(2); the clock is confirmed once STA_UNSYNC is
//     clear, which chrony and systemd-timesyncd both manage.
//   - ntp: queries the configured servers and confirms once the local
//     clock is within max_offset of a validated response.
//
// Running out of polls is not an error. Wait returns TimedOut and the caller
// carries on with an untrusted clock.
package timesync
