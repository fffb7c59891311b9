package main

import "campusleave/internal/app/server"

func main() {
	server.Run()
}
