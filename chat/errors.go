////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import "github.com/pkg/errors"

var (
	// ErrMalformedMessage is returned by [Normalize] when a raw payload
	// carries no usable peer identity, so the message cannot be placed in
	// any conversation. Such payloads are dropped and logged; they are
	// never surfaced as a user-facing failure.
	ErrMalformedMessage = errors.New("malformed message: no usable peer " +
		"identity")

	// ErrEmptyMessage is returned by [Client.Send] when the body is empty
	// after trimming. It is the only synchronous rejection in the engine.
	ErrEmptyMessage = errors.New("cannot send an empty message")
)
