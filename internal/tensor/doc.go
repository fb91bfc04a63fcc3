// Package tensor accumulates aligned video frames and audio chunks into fixed-size
// model input windows.
//
// The Accumulator keeps two window halves. Producers always write into the active
// half; once both its video and audio buffers are full the half is drained as a
// detached Window and the other half becomes active, optionally pre-seeded with
// KeepFrames worth of the completed window for overlap between consecutive windows.
package tensor
