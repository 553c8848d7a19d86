package main

import (
	"github.com/joho/godotenv"

	"github.com/example/teesched/cmd"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()
	cmd.Execute()
}
