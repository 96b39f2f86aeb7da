package bfrt_test

import (
	"github.com/dyso-testbed/dyso/core/testenv"
)

var makeAR = testenv.MakeAR
