// Package vision turns JPEG stills into fixed-size face crops for the video model.
package vision
