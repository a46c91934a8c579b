// Package videosync keeps video playback aligned across the displays of a
// wall. Endpoints elect the lowest channel ID as reference, wait until every
// display has buffered, measure their round trip to the reference once, and
// then follow the reference's periodic position broadcasts with a damped
// seek correction.
package videosync
