package main

import "github.com/samsaffron/chat-llm/cmd"

func main() {
	cmd.Execute()
}
