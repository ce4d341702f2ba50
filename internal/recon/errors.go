package recon

import "errors"

var (
    // ErrNotSettled means the gateway does not (yet) report a captured
    // payment. The order stays pending; nothing was printed.
    ErrNotSettled = errors.New("payment not settled")

    // ErrVerificationInFlight means another confirmation for the same order
    // is already running. The caller should simply wait for its result.
    ErrVerificationInFlight = errors.New("verification already in flight")

    // ErrOrderNotFound means no pending record exists for the order id.
    ErrOrderNotFound = errors.New("order not found")

    // ErrNotOwner means the requesting principal does not own the order.
    ErrNotOwner = errors.New("order belongs to a different phone number")

    // ErrNoDocument means a settled order cannot print because its document
    // is missing from the request and from storage.
    ErrNoDocument = errors.New("no document available for print")
)
