package routes

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"walletgateway/gateway/translator"
)

type handlers struct {
	translator     *translator.Translator
	logger         *zap.Logger
	mapStatusCodes bool
	maxBodyBytes   int64
}

func (h *handlers) getVersion(w http.ResponseWriter, r *http.Request) {
	resp, err := h.translator.GetVersion(r.Context())
	h.respond(w, r, resp, err)
}

func (h *handlers) getState(w http.ResponseWriter, r *http.Request) {
	resp, err := h.translator.GetState(r.Context())
	h.respond(w, r, resp, err)
}

func (h *handlers) getBalance(w http.ResponseWriter, r *http.Request) {
	resp, err := h.translator.GetBalance(r.Context())
	h.respond(w, r, resp, err)
}

func (h *handlers) getAddress(w http.ResponseWriter, r *http.Request) {
	resp, err := h.translator.GetAddress(r.Context())
	h.respond(w, r, resp, err)
}

func (h *handlers) getCompleteAddress(w http.ResponseWriter, r *http.Request) {
	resp, err := h.translator.GetCompleteAddress(r.Context())
	h.respond(w, r, resp, err)
}

func (h *handlers) getPaymentIdAddress(w http.ResponseWriter, r *http.Request) {
	resp, err := h.translator.GetPaymentIdAddress(r.Context(), r.URL.Query())
	h.respond(w, r, resp, err)
}

func (h *handlers) getTransactionInfo(w http.ResponseWriter, r *http.Request) {
	resp, err := h.translator.GetTransactionInfo(r.Context(), r.URL.Query())
	h.respond(w, r, resp, err)
}

func (h *handlers) getCompletedTransactions(w http.ResponseWriter, r *http.Request) {
	resp, err := h.translator.GetCompletedTransactions(r.Context(), r.URL.Query())
	h.respond(w, r, resp, err)
}

func (h *handlers) transfer(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		h.respond(w, r, nil, &bodyError{err: err})
		return
	}
	resp, err := h.translator.Transfer(r.Context(), body)
	h.respond(w, r, resp, err)
}
