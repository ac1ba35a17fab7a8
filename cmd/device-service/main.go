package main

import (
	"github.com/architeacher/svc-device-manager/internal/runtime"
)

func main() {
	runtime.NewService().Run()
}
