package main

import "github.com/JakeFAU/headless-page-crawler/cmd"

func main() {
	cmd.Execute()
}
