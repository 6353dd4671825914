package kubetask

import (
	"math"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
)

// ApplyResourceCoefficients completes the cpu and memory requirements of every
// container in spec. Declared amounts are kept as they are. A missing request is derived
// from the limit (limit * requestCoef) and a missing limit from the request
// (request * limitCoef). Extended resources such as GPUs are left alone since they
// cannot be overcommitted.
func ApplyResourceCoefficients(spec *corev1.PodSpec, requestCoef, limitCoef float64) {
	for i := range spec.InitContainers {
		scaleContainer(&spec.InitContainers[i], requestCoef, limitCoef)
	}
	for i := range spec.Containers {
		scaleContainer(&spec.Containers[i], requestCoef, limitCoef)
	}
}

func scaleContainer(c *corev1.Container, requestCoef, limitCoef float64) {
	for _, name := range []corev1.ResourceName{corev1.ResourceCPU, corev1.ResourceMemory} {
		request, hasRequest := c.Resources.Requests[name]
		limit, hasLimit := c.Resources.Limits[name]
		switch {
		case hasRequest && hasLimit, !hasRequest && !hasLimit:
			continue
		case hasRequest:
			if c.Resources.Limits == nil {
				c.Resources.Limits = corev1.ResourceList{}
			}
			c.Resources.Limits[name] = scaleQuantity(name, request, limitCoef)
		default:
			if c.Resources.Requests == nil {
				c.Resources.Requests = corev1.ResourceList{}
			}
			c.Resources.Requests[name] = scaleQuantity(name, limit, requestCoef)
		}
	}
}

func scaleQuantity(name corev1.ResourceName, q resource.Quantity, coef float64) resource.Quantity {
	if coef <= 0 || coef == 1 {
		return q.DeepCopy()
	}
	if name == corev1.ResourceCPU {
		return *resource.NewMilliQuantity(int64(math.Ceil(float64(q.MilliValue())*coef)), resource.DecimalSI)
	}
	return *resource.NewQuantity(int64(math.Ceil(float64(q.Value())*coef)), resource.BinarySI)
}
