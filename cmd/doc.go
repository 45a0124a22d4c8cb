// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

/*
Package cmd contains the rocketlogger-go module's command-line
applications: the main measurement daemon/CLI (rocketlogger), the
start/stop button daemon (rocketlogger-buttond), and the live-view reader
(rocketlogger-server).
*/
package cmd
