// Package httpapi serves the session lifecycle endpoints over HTTP with echo.
//
//	POST /api/auth/login            {email,password}
//	POST /api/auth/register         {email,password,username,fullName}   201
//	POST /api/auth/refresh          {refreshToken}
//	POST /api/auth/logout           {refreshToken?,accessToken?,allDevices?}
//	POST /api/auth/oauth/:provider  {code,redirectUri?,state?}
//	GET  /api/auth/me
//	GET  /healthz
//	GET  /metrics                   when a metrics handler is configured
//
// Every request passes through the session gate first, so route protection comes from
// the engine's authorization map and not from this package. Errors use the same JSON
// body as the gate; validation failures add a details array.
package httpapi
