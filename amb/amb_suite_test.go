package amb_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestAmb(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "amb Suite")
}
