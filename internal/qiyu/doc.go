// Package qiyu fetches the robot knowledge base from the Qiyu open API.
//
// Every request is signed: the JSON body is MD5-hashed and the checksum is
// SHA1(appSecret + md5 + unixSeconds), both as lower-case hex. Pages are
// requested sequentially, using the id of the last record on the previous
// page as the next cursor ("mid").
package qiyu
