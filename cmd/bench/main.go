package main

import (
	_ "benchml/internal/descriptor"
	_ "benchml/internal/kernel"
	_ "benchml/internal/predict"
	_ "benchml/internal/transport"
)

func main() {
	Execute()
}
