// Copyright 2022 The Chromium OS Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package servo provides helpers to work with the servo setup through the
// servod daemon.
package servo

import (
	"context"
	"time"

	"go.chromium.org/chromiumos/config/go/api/test/xmlrpc"
	"go.chromium.org/luci/common/errors"

	"infra/cros/repair/internal/components"
	"infra/cros/repair/internal/log"
	"infra/cros/repair/internal/retry"
	"infra/cros/repair/tlw"
)

// servod implements components.Servod on top of tlw.Access.
type servod struct {
	access   tlw.Access
	resource string
	port     int
	timeout  time.Duration
}

const defaultServodCallTimeout = 30 * time.Second

// NewServod creates a components.Servod which runs controls against the
// servod daemon serving the DUT named by resource.
func NewServod(access tlw.Access, resource string, port int) components.Servod {
	return &servod{
		access:   access,
		resource: resource,
		port:     port,
		timeout:  defaultServodCallTimeout,
	}
}

// Get reads the value of the requested control.
func (s *servod) Get(ctx context.Context, control string) (*xmlrpc.Value, error) {
	v, err := s.access.CallServod(ctx, &tlw.CallServodRequest{
		Resource: s.resource,
		Method:   tlw.ServodMethodGet,
		Args:     []*xmlrpc.Value{newStringValue(control)},
		Timeout:  s.timeout,
	})
	return v, errors.Annotate(err, "servod get %q", control).Err()
}

// Set sets the value for the requested control.
func (s *servod) Set(ctx context.Context, control string, val *xmlrpc.Value) error {
	_, err := s.access.CallServod(ctx, &tlw.CallServodRequest{
		Resource: s.resource,
		Method:   tlw.ServodMethodSet,
		Args:     []*xmlrpc.Value{newStringValue(control), val},
		Timeout:  s.timeout,
	})
	return errors.Annotate(err, "servod set %q", control).Err()
}

// Has checks whether the control is known by the daemon.
func (s *servod) Has(ctx context.Context, control string) error {
	_, err := s.access.CallServod(ctx, &tlw.CallServodRequest{
		Resource: s.resource,
		Method:   tlw.ServodMethodDoc,
		Args:     []*xmlrpc.Value{newStringValue(control)},
		Timeout:  s.timeout,
	})
	return errors.Annotate(err, "servod has %q", control).Err()
}

// Port provides the port used for running the servod daemon.
func (s *servod) Port() int {
	return s.port
}

func newStringValue(v string) *xmlrpc.Value {
	return &xmlrpc.Value{
		ScalarOneof: &xmlrpc.Value_String_{
			String_: v,
		},
	}
}

// GetString retrieves from servod the value of the control passed as an
// argument and returns it as a string.
func GetString(ctx context.Context, servod components.Servod, control string) (string, error) {
	res, err := servod.Get(ctx, control)
	if err != nil {
		return "", errors.Annotate(err, "servod get string").Err()
	}
	return res.GetString_(), nil
}

// GetBool retrieves from servod the value of the control passed as an
// argument and returns it as a boolean.
func GetBool(ctx context.Context, servod components.Servod, control string) (bool, error) {
	res, err := servod.Get(ctx, control)
	if err != nil {
		return false, errors.Annotate(err, "servod get bool").Err()
	}
	return res.GetBoolean(), nil
}

// SetString sets the requested control to the provided string value.
func SetString(ctx context.Context, servod components.Servod, control, value string) error {
	if err := servod.Set(ctx, control, newStringValue(value)); err != nil {
		return errors.Annotate(err, "servod set string").Err()
	}
	return nil
}

const (
	// How many times we re-read the control before declaring the set lost.
	setConfirmAttempts = 3
	// Pause between the re-reads.
	setConfirmInterval = time.Second
)

// SetStringAndConfirm sets the control to the provided value and re-reads it
// until the value converges, retrying a fixed number of times.
func SetStringAndConfirm(ctx context.Context, servod components.Servod, control, value string) error {
	if err := SetString(ctx, servod, control, value); err != nil {
		return errors.Annotate(err, "servod set %q and confirm", control).Err()
	}
	err := retry.LimitCount(ctx, setConfirmAttempts, setConfirmInterval, func() error {
		got, err := GetString(ctx, servod, control)
		if err != nil {
			return errors.Annotate(err, "confirm").Err()
		}
		if got != value {
			return errors.Reason("confirm: has %q, expected %q", got, value).Err()
		}
		return nil
	}, "servod set "+control)
	if err != nil {
		log.Debugf(ctx, "Control %q did not converge to %q.", control, value)
		return errors.Annotate(err, "servod set %q and confirm", control).Err()
	}
	return nil
}

// IsControlUnknown tells whether the error means the control does not exist
// on this servo configuration.
func IsControlUnknown(err error) bool {
	return tlw.ServodControlUnknownTag.In(err)
}

// IsConsoleUnresponsive tells whether the error means the console behind the
// control did not respond at all.
func IsConsoleUnresponsive(err error) bool {
	return tlw.ServodConsoleUnresponsiveTag.In(err)
}

// IsConsoleCommandError tells whether the console responded but the command
// itself failed.
func IsConsoleCommandError(err error) bool {
	return tlw.ServodConsoleErrorTag.In(err)
}
