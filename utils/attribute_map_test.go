package utils

import (
	"testing"
	"time"

	"go.viam.com/test"
)

type sampleAttrs struct {
	KernelSize int           `json:"kernel_size"`
	Sigma      float64       `json:"sigma"`
	Delay      time.Duration `json:"delay"`
}

func TestTransformAttributeMap(t *testing.T) {
	attrs := AttributeMap{"kernel_size": 5, "sigma": 1.5, "delay": "16ms"}
	test.That(t, attrs.Has("sigma"), test.ShouldBeTrue)
	test.That(t, attrs.Has("missing"), test.ShouldBeFalse)

	out, err := TransformAttributeMap[sampleAttrs](attrs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, sampleAttrs{KernelSize: 5, Sigma: 1.5, Delay: 16 * time.Millisecond})

	out, err = TransformAttributeMap[sampleAttrs](AttributeMap{"delay": 40.0})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Delay, test.ShouldEqual, 40*time.Millisecond)

	_, err = TransformAttributeMap[sampleAttrs](AttributeMap{"kernel": 5})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = TransformAttributeMap[sampleAttrs](AttributeMap{"kernel_size": "big"})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDecodeIntoKeepsDefaults(t *testing.T) {
	out := sampleAttrs{KernelSize: 3, Sigma: 2}
	test.That(t, DecodeInto(map[string]interface{}{"sigma": 0.5}, &out, false), test.ShouldBeNil)
	test.That(t, out, test.ShouldResemble, sampleAttrs{KernelSize: 3, Sigma: 0.5})

	test.That(t, DecodeInto(map[string]interface{}{}, out, false), test.ShouldNotBeNil)
}
