// Copyright 2024 The RocketLogger Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package parse

import (
	"fmt"
	"strings"

	"github.com/ethz-csg/rocketlogger-go/channel"
)

// ChannelList parses a comma-separated list of channel names, or the
// literal "all" for every analog channel, into a set of enabled analog
// channels suitable for measurement.Config.
func ChannelList(arg string) (map[channel.Channel]bool, error) {
	enabled := make(map[channel.Channel]bool, len(channel.AnalogChannels))
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return enabled, nil
	}
	if strings.EqualFold(arg, "all") {
		for _, c := range channel.AnalogChannels {
			enabled[c] = true
		}
		return enabled, nil
	}
	for _, name := range strings.Split(arg, ",") {
		name = strings.TrimSpace(name)
		c, ok := channel.Parse(name)
		if !ok || !c.IsAnalog() {
			return nil, fmt.Errorf("parse.ChannelList: unknown analog channel %q", name)
		}
		enabled[c] = true
	}
	return enabled, nil
}
