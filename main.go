package main

import (
	"os"

	"github.com/pixelfederation/eks-automode-estimator/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
