// Package models registers every built-in model with the model registry.
package models

import (
	_ "github.com/cnnbench/cnnbench/model/models/vgg"
)
