// Command wxprobe drives and inspects the WeChat Android app.
package main

import "github.com/wxauto/wxprobe/pkg/cli"

func main() {
	cli.Execute()
}
