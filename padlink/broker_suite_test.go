package padlink

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestPadlink(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Padlink Broker Suite")
}
