package main

import (
	"os"

	"github.com/Aakash091-dark/news-scraper-new/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
