// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

/*
Package rocketlogger is the top-level package of the rocketlogger-go module.
See the measurement package for the sampling lifecycle and daemon, the pru
package for the co-processor driver, the rld package for the file container
format, and the shm package for the live-view IPC layer.
*/
package rocketlogger
