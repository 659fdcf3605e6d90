package main

import (
	"staypermit/cmd/staypermit/commands"
	"staypermit/internal/components/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
