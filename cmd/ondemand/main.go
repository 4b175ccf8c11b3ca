package main

import (
	"context"
	"os"

	"github.com/GPTx-global/ondemand/oracle/log"
)

func main() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
