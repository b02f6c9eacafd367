// Package download runs jobs end to end. Service owns the job lifecycle:
// metadata through the request throttle, format selection, sequential stream
// capture with phase-weighted progress, and the merge step when video and
// audio arrive separately.
package download
