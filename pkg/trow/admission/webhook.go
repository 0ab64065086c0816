package admission

import "encoding/json"

// PodSpec is the minimal slice of a Kubernetes Pod spec the controller reads:
// the container and init-container image references.
type PodSpec struct {
	Containers     []Container `json:"containers"`
	InitContainers []Container `json:"initContainers,omitempty"`
}

// Container is the minimal slice of a Kubernetes container spec needed here.
type Container struct {
	Image string `json:"image"`
}

// Pod is the minimal slice of a Kubernetes Pod object the webhook unmarshals
// the AdmissionRequest's raw object into.
type Pod struct {
	Spec PodSpec `json:"spec"`
}

// AdmissionRequest mirrors the subset of a Kubernetes
// admission.k8s.io/v1 AdmissionReview.request the controller consumes.
type AdmissionRequest struct {
	UID    string          `json:"uid"`
	Object json.RawMessage `json:"object"`
}

// AdmissionResponse mirrors the subset of admission.k8s.io/v1
// AdmissionReview.response the controller produces.
type AdmissionResponse struct {
	UID       string  `json:"uid"`
	Allowed   bool    `json:"allowed"`
	Status    *Status `json:"status,omitempty"`
	PatchType *string `json:"patchType,omitempty"`
	Patch     []byte  `json:"patch,omitempty"`
}

// Status carries a human-readable denial reason, mirroring meta/v1.Status's
// message field.
type Status struct {
	Message string `json:"message"`
}

// AdmissionReview mirrors the admission.k8s.io/v1 AdmissionReview envelope
// used on both the request and response side of the webhook.
type AdmissionReview struct {
	APIVersion string             `json:"apiVersion"`
	Kind       string             `json:"kind"`
	Request    *AdmissionRequest  `json:"request,omitempty"`
	Response   *AdmissionResponse `json:"response,omitempty"`
}

// PatchOperation is a single RFC 6902 JSON Patch operation.
type PatchOperation struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value string `json:"value"`
}

func extractImages(pod Pod) []ContainerImage {
	var images []ContainerImage
	for i, c := range pod.Spec.Containers {
		if c.Image == "" {
			continue
		}
		images = append(images, ContainerImage{
			Image: c.Image,
			Path:  jsonPointer("containers", i),
		})
	}
	for i, c := range pod.Spec.InitContainers {
		if c.Image == "" {
			continue
		}
		images = append(images, ContainerImage{
			Image: c.Image,
			Path:  jsonPointer("initContainers", i),
		})
	}
	return images
}

func jsonPointer(field string, index int) string {
	return "/spec/" + field + "/" + itoa(index) + "/image"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

// Validate evaluates every image reference in the request's Pod object
// against policy, denying the whole request if any one image fails.
func Validate(req AdmissionRequest, policy Policy) AdmissionResponse {
	resp := AdmissionResponse{UID: req.UID, Allowed: true}

	var pod Pod
	if err := json.Unmarshal(req.Object, &pod); err != nil {
		resp.Allowed = false
		resp.Status = &Status{Message: "unable to decode pod object"}
		return resp
	}

	images := extractImages(pod)
	if ok, reason := EvaluatePod(images, policy); !ok {
		resp.Allowed = false
		resp.Status = &Status{Message: reason}
	}
	return resp
}

// Mutate evaluates every image reference in the request's Pod object and
// returns a JSON Patch replacing each image for which rewrite reports a
// change (the server's rewrite maps an image on a proxied upstream host to
// this registry's "f/<alias>/..." form). If any image is disallowed, the
// request is denied as in Validate and no image is rewritten.
func Mutate(req AdmissionRequest, policy Policy, rewrite func(image string) (string, bool)) (AdmissionResponse, error) {
	resp := AdmissionResponse{UID: req.UID, Allowed: true}

	var pod Pod
	if err := json.Unmarshal(req.Object, &pod); err != nil {
		resp.Allowed = false
		resp.Status = &Status{Message: "unable to decode pod object"}
		return resp, nil
	}

	images := extractImages(pod)
	if ok, reason := EvaluatePod(images, policy); !ok {
		resp.Allowed = false
		resp.Status = &Status{Message: reason}
		return resp, nil
	}

	var ops []PatchOperation
	for _, c := range images {
		if rewritten, changed := rewrite(c.Image); changed {
			ops = append(ops, PatchOperation{Op: "replace", Path: c.Path, Value: rewritten})
		}
	}
	if len(ops) == 0 {
		return resp, nil
	}

	raw, err := json.Marshal(ops)
	if err != nil {
		return AdmissionResponse{}, err
	}
	patchType := "JSONPatch"
	resp.PatchType = &patchType
	resp.Patch = raw
	return resp, nil
}
