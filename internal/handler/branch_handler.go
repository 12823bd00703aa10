package handler

import "net/http"

func (h *Handler) listBranches(w http.ResponseWriter, r *http.Request) {
	out, err := h.branches.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getBranch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.withID(w, r)
	if !ok {
		return
	}
	b, err := h.branches.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
