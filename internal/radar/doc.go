// Package radar implements the obstacle-detection pipeline for a
// pulsed-coherent 60 GHz radar sensor.
//
// Data flows through a fixed set of per-frame stages:
//
//	frame source -> depth filter -> subsweep FFT processor -> target merge
//	             -> Kalman filter bank -> (optional) bilateration -> result
//
// The pipeline is single-threaded and pull-based: the session owner calls
// Detector.GetNext once per frame interval and the only blocking point is
// the frame-source read. All filter state assumes in-order frames with a
// fixed inter-frame time delta.
package radar
