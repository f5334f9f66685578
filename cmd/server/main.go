package main

import (
	_ "time/tzdata"

	"hrpayroll/internal/app/server"
)

func main() {
	server.Run()
}
