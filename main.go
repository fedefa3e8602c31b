// SPDX-License-Identifier: MPL-2.0

package main

import cmd "stackctl/cmd/stackctl"

func main() {
	cmd.Execute()
}
