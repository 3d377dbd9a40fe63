// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Command adal acquires Azure Active Directory tokens from the command line.
package main

var version = "dev"

func main() {
	Execute()
}
