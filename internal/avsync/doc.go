// Package avsync aligns video and audio items by sender timestamp.
//
// Video and audio items are held in bounded FIFO queues. A Synchronizer trims
// both queues, then greedily pairs the oldest items whose timestamps fall within
// a tolerance, discarding whichever side is older when they do not.
//
// Queues are safe for concurrent use so that teardown can clear them while the
// receive loop is still draining.
package avsync
