// Package inference runs the two-stage speech enhancement models over tensor windows.
//
// A video model turns a window of face crops into a visual embedding; an audio model
// consumes the noisy waveform plus that embedding and returns the enhanced waveform.
// Models are provided by pluggable backends looked up by name. The Gateway in front of
// the Engine lets at most one inference run at a time and skips windows that arrive
// while it is busy.
package inference
