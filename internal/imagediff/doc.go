// Package imagediff compares two screenshots pixel by pixel and reports the
// fraction of differing pixels along with a PNG mask highlighting them.
//
// Decoding covers PNG, JPEG and GIF from the standard library plus BMP, TIFF
// and WebP from golang.org/x/image. Images of different dimensions are a
// layout difference and always score 1.
package imagediff
