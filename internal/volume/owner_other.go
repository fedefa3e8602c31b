// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package volume

import (
	"errors"

	"stackctl/internal/privilege"
)

func lstatOwner(string) (privilege.Identity, error) {
	return privilege.Identity{}, errors.New("ownership inspection is only supported on unix hosts")
}
